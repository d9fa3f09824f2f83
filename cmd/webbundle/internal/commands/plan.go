package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type PlanCmd struct {
	ProjectFlags
	Mode   string `help:"build mode (development or production)" env:"WEBBUNDLE_MODE"`
	Format string `help:"output format" default:"json" enum:"json,yaml"`
}

func (p *PlanCmd) Run(globals *Globals) error {
	plan, err := resolvePlan(p.Mode, p.Dir)
	if err != nil {
		return err
	}

	out := globals.Stdout
	if out == nil {
		out = os.Stdout
	}

	switch p.Format {
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(plan); err != nil {
			return fmt.Errorf("failed to encode plan: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}
}
