package models

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"time"
)

type Provider string

const (
	ProviderAWS   Provider = "aws"
	ProviderAzure Provider = "azure"
	ProviderGCP   Provider = "gcp"
	ProviderVast  Provider = "vast"
)

// SupportedProviders is the fixed provider order used for reporting buckets.
var SupportedProviders = []Provider{ProviderAWS, ProviderAzure, ProviderGCP, ProviderVast}

type PlanStatus string

const (
	PlanStatusQueued       PlanStatus = "queued"
	PlanStatusCoordinating PlanStatus = "coordinating"
	PlanStatusSimulating   PlanStatus = "simulating"
	PlanStatusRecommended  PlanStatus = "recommended"
	PlanStatusFailed       PlanStatus = "failed"
)

func (s PlanStatus) Terminal() bool {
	return s == PlanStatusRecommended || s == PlanStatusFailed
}

func (s PlanStatus) Valid() bool {
	switch s {
	case PlanStatusQueued, PlanStatusCoordinating, PlanStatusSimulating, PlanStatusRecommended, PlanStatusFailed:
		return true
	}
	return false
}

const (
	DefaultResultLimit = 5
	MaxResultLimit     = 20
)

var dataLocationPattern = regexp.MustCompile(`^(aws|azure|gcp|vast)-[a-z0-9-]+$`)

// PlanRequest is the provider-agnostic resource requirement a plan is created from.
type PlanRequest struct {
	DataLocation   string  `json:"data_location"`
	GPUCount       int     `json:"gpu_count"`
	RAMRequirement float64 `json:"ram_requirement"`
	DatasetSizeGB  float64 `json:"dataset_size_gb"`
	DurationHours  float64 `json:"duration_hours"`
	ParityMode     bool    `json:"parity_mode"`
	ResultLimit    int     `json:"result_limit"`
}

type PlanRecord struct {
	ID        string      `json:"id"`
	Request   PlanRequest `json:"request"`
	Status    PlanStatus  `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Error     string      `json:"error,omitempty"`
}

// FieldErrors maps a request field to the problems found with it.
type FieldErrors map[string][]string

func (f FieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

// rawPlanRequest keeps defaults detectable while decoding.
type rawPlanRequest struct {
	DataLocation   *string      `json:"data_location"`
	GPUCount       *json.Number `json:"gpu_count"`
	RAMRequirement *json.Number `json:"ram_requirement"`
	DatasetSizeGB  *json.Number `json:"dataset_size_gb"`
	DurationHours  *json.Number `json:"duration_hours"`
	ParityMode     *bool        `json:"parity_mode"`
	ResultLimit    *json.Number `json:"result_limit"`
}

// ParsePlanRequest decodes and validates a plan request body, applying defaults for
// parity_mode and result_limit. Unknown fields are ignored.
func ParsePlanRequest(data []byte) (PlanRequest, FieldErrors, error) {
	var raw rawPlanRequest
	if err := json.Unmarshal(data, &raw); err != nil {
		return PlanRequest{}, nil, fmt.Errorf("decode plan request: %w", err)
	}

	errs := FieldErrors{}
	req := PlanRequest{ParityMode: true, ResultLimit: DefaultResultLimit}

	if raw.DataLocation == nil {
		errs.add("data_location", "Required")
	} else if !dataLocationPattern.MatchString(*raw.DataLocation) {
		errs.add("data_location", "Invalid")
	} else {
		req.DataLocation = *raw.DataLocation
	}

	if n, ok := requiredNumber(errs, "gpu_count", raw.GPUCount); ok {
		if !isInteger(n) {
			errs.add("gpu_count", "Expected integer, received float")
		} else if n <= 0 {
			errs.add("gpu_count", "Number must be greater than 0")
		} else {
			req.GPUCount = int(n)
		}
	}
	if n, ok := requiredNumber(errs, "ram_requirement", raw.RAMRequirement); ok {
		if n <= 0 {
			errs.add("ram_requirement", "Number must be greater than 0")
		} else {
			req.RAMRequirement = n
		}
	}
	if n, ok := requiredNumber(errs, "dataset_size_gb", raw.DatasetSizeGB); ok {
		if n < 0 {
			errs.add("dataset_size_gb", "Number must be greater than or equal to 0")
		} else {
			req.DatasetSizeGB = n
		}
	}
	if n, ok := requiredNumber(errs, "duration_hours", raw.DurationHours); ok {
		if n <= 0 {
			errs.add("duration_hours", "Number must be greater than 0")
		} else {
			req.DurationHours = n
		}
	}
	if raw.ParityMode != nil {
		req.ParityMode = *raw.ParityMode
	}
	if raw.ResultLimit != nil {
		n, err := raw.ResultLimit.Float64()
		switch {
		case err != nil:
			errs.add("result_limit", "Expected number")
		case !isInteger(n):
			errs.add("result_limit", "Expected integer, received float")
		case n < 1 || n > MaxResultLimit:
			errs.add("result_limit", fmt.Sprintf("Number must be between 1 and %d", MaxResultLimit))
		default:
			req.ResultLimit = int(n)
		}
	}

	if len(errs) > 0 {
		return PlanRequest{}, errs, nil
	}
	return req, nil, nil
}

func requiredNumber(errs FieldErrors, field string, v *json.Number) (float64, bool) {
	if v == nil {
		errs.add(field, "Required")
		return 0, false
	}
	n, err := v.Float64()
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		errs.add(field, "Expected number")
		return 0, false
	}
	return n, true
}

func isInteger(n float64) bool {
	return n == math.Trunc(n)
}

// ClampResultLimit applies the stored-plan fallback rules: missing or < 1 uses the
// fallback, anything above the maximum is capped.
func ClampResultLimit(value, fallback int) int {
	if value < 1 {
		value = fallback
	}
	if value > MaxResultLimit {
		value = MaxResultLimit
	}
	return value
}
