package rdbcore

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/muskanmahajan37/RefineDB/schema"
	"github.com/muskanmahajan37/RefineDB/storageplan"
)

var (
	planSchemaPath    string
	planOldPlanPath   string
	planOldSchemaPath string
	planOutPath       string
)

var planCommand = &cobra.Command{
	Use:   "plan",
	Short: "Generate and inspect storage plans",
}

var planGenerateCommand = &cobra.Command{
	Use:   "generate",
	Short: "Generate a storage plan from a schema document, carrying keys over from a prior plan when given one",
	RunE: func(_ *cobra.Command, _ []string) error {
		newSchema, err := schema.LoadJSONFile(planSchemaPath)
		if err != nil {
			return err
		}

		var oldPlan *storageplan.Plan
		var oldSchema *schema.CompiledSchema
		if planOldPlanPath != "" {
			if planOldSchemaPath == "" {
				return fmt.Errorf("rdbcore: --old-plan requires --old-schema")
			}
			data, err := os.ReadFile(planOldPlanPath)
			if err != nil {
				return err
			}
			if oldPlan, err = storageplan.Unmarshal(data); err != nil {
				return err
			}
			if oldSchema, err = schema.LoadJSONFile(planOldSchemaPath); err != nil {
				return err
			}
		}

		planner := storageplan.NewPlanner(logrus.NewEntry(logrus.StandardLogger()))
		plan, err := storageplan.Generate(oldPlan, oldSchema, newSchema, planner)
		if err != nil {
			return err
		}

		out, err := storageplan.Marshal(plan)
		if err != nil {
			return err
		}
		if err := os.WriteFile(planOutPath, out, 0o644); err != nil {
			return err
		}
		log.WithFields(map[string]interface{}{
			"exports": len(plan.Roots),
			"keys":    len(plan.AllKeys()),
			"out":     planOutPath,
		}).Info("generated storage plan")
		return nil
	},
}

func init() {
	planGenerateCommand.Flags().StringVar(&planSchemaPath, "schema", "", "path to the new schema JSON document")
	planGenerateCommand.Flags().StringVar(&planOldPlanPath, "old-plan", "", "path to a prior plan to carry keys over from")
	planGenerateCommand.Flags().StringVar(&planOldSchemaPath, "old-schema", "", "path to the schema the prior plan was generated from")
	planGenerateCommand.Flags().StringVar(&planOutPath, "out", "plan.bin", "output path for the generated plan")
	_ = planGenerateCommand.MarkFlagRequired("schema")
	planCommand.AddCommand(planGenerateCommand)
}
