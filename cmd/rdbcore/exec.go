package rdbcore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/muskanmahajan37/RefineDB/exec"
	"github.com/muskanmahajan37/RefineDB/ir"
	"github.com/muskanmahajan37/RefineDB/kv/badgerkv"
	"github.com/muskanmahajan37/RefineDB/schema"
	"github.com/muskanmahajan37/RefineDB/storageplan"
	"github.com/muskanmahajan37/RefineDB/vmvalue"
)

var (
	execSchemaPath string
	execPlanPath   string
	execScriptPath string
	execStoreDir   string
	execGraphName  string
	execParamsJSON string
)

var execCommand = &cobra.Command{
	Use:   "exec",
	Short: "Execute compiled script graphs against a store",
}

// jsonParam is the CLI's wire shape for one Execute parameter — only the
// primitive kinds an entry graph's LoadParam nodes realistically consume.
type jsonParam struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

func paramFromJSON(p jsonParam) (*vmvalue.Value, error) {
	switch p.Type {
	case "null":
		return vmvalue.NewNull(), nil
	case "bool":
		var b bool
		if err := json.Unmarshal(p.Value, &b); err != nil {
			return nil, err
		}
		return vmvalue.NewBool(b), nil
	case "int64":
		var i int64
		if err := json.Unmarshal(p.Value, &i); err != nil {
			return nil, err
		}
		return vmvalue.NewInt64(i), nil
	case "double":
		var f float64
		if err := json.Unmarshal(p.Value, &f); err != nil {
			return nil, err
		}
		return vmvalue.NewDouble(f), nil
	case "string":
		var s string
		if err := json.Unmarshal(p.Value, &s); err != nil {
			return nil, err
		}
		return vmvalue.NewString(s), nil
	case "bytes":
		var s string
		if err := json.Unmarshal(p.Value, &s); err != nil {
			return nil, err
		}
		raw, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, err
		}
		return vmvalue.NewBytes(raw), nil
	default:
		return nil, fmt.Errorf("rdbcore: unknown param type %q", p.Type)
	}
}

var execRunCommand = &cobra.Command{
	Use:   "run",
	Short: "Execute one script graph and print its result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		sch, err := schema.LoadJSONFile(execSchemaPath)
		if err != nil {
			return err
		}
		planBytes, err := os.ReadFile(execPlanPath)
		if err != nil {
			return err
		}
		plan, err := storageplan.Unmarshal(planBytes)
		if err != nil {
			return err
		}
		scriptBytes, err := os.ReadFile(execScriptPath)
		if err != nil {
			return err
		}
		script, err := ir.Unmarshal(scriptBytes)
		if err != nil {
			return err
		}
		if err := script.Validate(); err != nil {
			return fmt.Errorf("rdbcore: invalid script: %w", err)
		}

		var rawParams []jsonParam
		if execParamsJSON != "" {
			if err := json.Unmarshal([]byte(execParamsJSON), &rawParams); err != nil {
				return fmt.Errorf("rdbcore: --params: %w", err)
			}
		}
		params := make([]*vmvalue.Value, len(rawParams))
		for i, rp := range rawParams {
			v, err := paramFromJSON(rp)
			if err != nil {
				return err
			}
			params[i] = v
		}

		// Every invocation gets its own request id, the same way OPA
		// tags a request's log lines for correlation across a run.
		requestID := uuid.NewString()
		reqLog := log.WithFields(map[string]interface{}{
			"request_id": requestID,
			"graph":      execGraphName,
		})

		store, err := badgerkv.Open(execStoreDir, nil)
		if err != nil {
			return fmt.Errorf("rdbcore: opening store: %w", err)
		}
		defer store.Close(context.Background())

		vm := exec.NewVM(sch, plan, script, store, reqLog)
		ex := exec.NewExecutor(vm)

		result, err := ex.Execute(context.Background(), execGraphName, params)
		if err != nil {
			reqLog.WithFields(map[string]interface{}{"error": err.Error()}).Error("execution failed")
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), result.String())
		return err
	},
}

func init() {
	execRunCommand.Flags().StringVar(&execSchemaPath, "schema", "", "path to the schema JSON document")
	execRunCommand.Flags().StringVar(&execPlanPath, "plan", "", "path to the storage plan produced by 'plan generate'")
	execRunCommand.Flags().StringVar(&execScriptPath, "script", "", "path to the compiled script (MessagePack)")
	execRunCommand.Flags().StringVar(&execStoreDir, "store", "", "badger data directory")
	execRunCommand.Flags().StringVar(&execGraphName, "graph", "", "name of the exported graph to run")
	execRunCommand.Flags().StringVar(&execParamsJSON, "params", "", `JSON array of {"type":..,"value":..} parameters`)
	for _, name := range []string{"schema", "plan", "script", "store", "graph"} {
		_ = execRunCommand.MarkFlagRequired(name)
	}
	execCommand.AddCommand(execRunCommand)
}
