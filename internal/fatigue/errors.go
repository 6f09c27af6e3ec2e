package fatigue

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrEmptyDataset     = errors.New("dataset has no campaigns")
)

// SchemaError reports required columns missing from a dataset.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return "missing required column(s): " + strings.Join(e.Missing, ", ")
}

// NotReadyError is returned when a pipeline stage runs before its predecessor.
type NotReadyError struct {
	Stage   string
	Missing string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("%s: %s has not run", e.Stage, e.Missing)
}
