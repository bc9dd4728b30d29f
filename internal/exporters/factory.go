package exporters

import (
	"context"
	"fmt"

	"github.com/docetl-project/docetl/internal/domain"
)

// Factory selects and connects an Exporter for a DB/FILE/JSON exporter
// step, keyed by the step's own "driver" param (sqlite/postgres/mysql/
// mongo) for DB_EXPORTER steps, and unconditionally for FILE/JSON ones.
type Factory struct{}

// ForStep implements executor.ExporterFactory: builds the Exporter
// matching step.Kind/step.Params["driver"], connects it against
// step.Params, and returns it ready for BatchInsert.
func (Factory) ForStep(step domain.StepConfig) (Exporter, error) {
	var exp Exporter

	switch step.Kind {
	case domain.StepFileExporter, domain.StepJSONExporter:
		exp = &FileExporter{}
	case domain.StepDBExporter:
		driver, _ := step.Params["driver"].(string)
		switch driver {
		case "sqlite":
			exp = &SQLiteExporter{}
		case "postgres":
			exp = &PostgresExporter{}
		case "mysql":
			exp = &MySQLExporter{}
		case "mongo":
			exp = &MongoExporter{}
		default:
			return nil, fmt.Errorf("exporters: unknown driver %q for step %s", driver, step.ID)
		}
	default:
		return nil, fmt.Errorf("exporters: step kind %s is not an exporter step", step.Kind)
	}

	if err := exp.Connect(context.Background(), step.Params); err != nil {
		return nil, err
	}
	return exp, nil
}
