package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/dukex/flowforge/pkg/models"
)

// decodeWorkflows reads one or more YAML documents (JSON is valid YAML).
// Documents go through JSON so the model's json tags define the field names.
func decodeWorkflows(r io.Reader) ([]*models.Workflow, error) {
	decoder := yaml.NewDecoder(r)

	var workflows []*models.Workflow

	for index := 0; ; index++ {
		var doc any

		err := decoder.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("document %d: %w", index, err)
		}

		if doc == nil {
			continue
		}

		payload, err := json.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", index, err)
		}

		var wf models.Workflow
		if err := json.Unmarshal(payload, &wf); err != nil {
			return nil, fmt.Errorf("document %d is not a workflow: %w", index, err)
		}

		workflows = append(workflows, &wf)
	}

	if len(workflows) == 0 {
		return nil, errors.New("no workflow documents found")
	}

	return workflows, nil
}
