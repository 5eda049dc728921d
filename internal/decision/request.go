package decision

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/apperr"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
)

const validationMessage = "Decision request validation failed"

// Providers accepted by the scorer.
var Providers = []models.Provider{models.ProviderAzure, models.ProviderAWS, models.ProviderGCP}

type OptimizationType string

const (
	RightSizing         OptimizationType = "RIGHT_SIZING"
	ReservedInstance    OptimizationType = "RESERVED_INSTANCE"
	StorageOptimization OptimizationType = "STORAGE_OPTIMIZATION"
	NetworkOptimization OptimizationType = "NETWORK_OPTIMIZATION"
)

func (t OptimizationType) valid() bool {
	switch t {
	case RightSizing, ReservedInstance, StorageOptimization, NetworkOptimization:
		return true
	}
	return false
}

type CostSummary struct {
	MonthlyTotal float64 `json:"monthlyTotal"`
	YearlyTotal  float64 `json:"yearlyTotal"`
	Currency     string  `json:"currency"`
}

type CostBreakdown struct {
	Compute       float64 `json:"compute"`
	Storage       float64 `json:"storage"`
	Database      float64 `json:"database"`
	Backup        float64 `json:"backup"`
	NetworkEgress float64 `json:"networkEgress"`
	Other         float64 `json:"other"`
}

// MetadataValue is a detail metadata entry: a string, number or boolean.
type MetadataValue struct {
	raw interface{}
}

func StringValue(s string) MetadataValue { return MetadataValue{raw: s} }

func NumberValue(f float64) MetadataValue { return MetadataValue{raw: f} }

func BoolValue(b bool) MetadataValue { return MetadataValue{raw: b} }

func (m MetadataValue) Interface() interface{} { return m.raw }

func (m *MetadataValue) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v.(type) {
	case string, float64, bool:
		m.raw = v
		return nil
	}
	found := "null"
	switch v.(type) {
	case map[string]interface{}:
		found = "object"
	case []interface{}:
		found = "array"
	}
	return &json.UnmarshalTypeError{Value: found, Type: reflect.TypeOf(m).Elem()}
}

func (m MetadataValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.raw)
}

// Number reads the value as a finite number. Numeric strings are accepted.
func (m MetadataValue) Number() (float64, bool) {
	switch v := m.raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

type CostDetailItem struct {
	ServiceType string                   `json:"serviceType"`
	Name        string                   `json:"name"`
	SKU         string                   `json:"sku,omitempty"`
	Quantity    float64                  `json:"quantity"`
	UnitPrice   *float64                 `json:"unitPrice,omitempty"`
	MonthlyCost float64                  `json:"monthlyCost"`
	Metadata    map[string]MetadataValue `json:"metadata,omitempty"`
}

type OptimizationRecommendation struct {
	Type                    OptimizationType `json:"type"`
	Message                 string           `json:"message"`
	EstimatedMonthlySavings float64          `json:"estimatedMonthlySavings"`
}

type ProviderOptimization struct {
	Provider        models.Provider              `json:"provider"`
	Recommendations []OptimizationRecommendation `json:"recommendations"`
}

type ProviderCostResult struct {
	Provider       models.Provider       `json:"provider"`
	Region         string                `json:"region"`
	Summary        CostSummary           `json:"summary"`
	Breakdown      CostBreakdown         `json:"breakdown"`
	Details        []CostDetailItem      `json:"details"`
	PricingVersion string                `json:"pricingVersion"`
	CalculatedAt   string                `json:"calculatedAt"`
	Optimization   *ProviderOptimization `json:"optimization,omitempty"`
}

type Request struct {
	ProviderResults             []ProviderCostResult   `json:"providerResults"`
	OptimizationRecommendations []ProviderOptimization `json:"optimizationRecommendations,omitempty"`
}

// Wire shapes with pointers so absent fields are detectable.
type rawRequest struct {
	ProviderResults             *[]rawProviderResult       `json:"providerResults"`
	OptimizationRecommendations *[]rawProviderOptimization `json:"optimizationRecommendations"`
}

type rawProviderResult struct {
	Provider       *string                  `json:"provider"`
	Region         *string                  `json:"region"`
	Summary        *rawSummary              `json:"summary"`
	Breakdown      *rawBreakdown            `json:"breakdown"`
	Details        *[]rawDetail             `json:"details"`
	PricingVersion *string                  `json:"pricingVersion"`
	CalculatedAt   *string                  `json:"calculatedAt"`
	Optimization   *rawProviderOptimization `json:"optimization"`
}

type rawSummary struct {
	MonthlyTotal *float64 `json:"monthlyTotal"`
	YearlyTotal  *float64 `json:"yearlyTotal"`
	Currency     *string  `json:"currency"`
}

type rawBreakdown struct {
	Compute       *float64 `json:"compute"`
	Storage       *float64 `json:"storage"`
	Database      *float64 `json:"database"`
	Backup        *float64 `json:"backup"`
	NetworkEgress *float64 `json:"networkEgress"`
	Other         *float64 `json:"other"`
}

type rawDetail struct {
	ServiceType *string                  `json:"serviceType"`
	Name        *string                  `json:"name"`
	SKU         *string                  `json:"sku"`
	Quantity    *float64                 `json:"quantity"`
	UnitPrice   *float64                 `json:"unitPrice"`
	MonthlyCost *float64                 `json:"monthlyCost"`
	Metadata    map[string]MetadataValue `json:"metadata"`
}

type rawProviderOptimization struct {
	Provider        *string                 `json:"provider"`
	Recommendations *[]rawOptimizationEntry `json:"recommendations"`
}

type rawOptimizationEntry struct {
	Type                    *string  `json:"type"`
	Message                 *string  `json:"message"`
	EstimatedMonthlySavings *float64 `json:"estimatedMonthlySavings"`
}

// ParseRequest decodes and validates a decision request body. Unknown fields, missing
// fields and out-of-range values fail with a 422 carrying per-field issues.
func ParseRequest(body []byte) (Request, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	var raw rawRequest
	if err := dec.Decode(&raw); err != nil {
		return Request{}, apperr.Unprocessable(validationMessage, decodeIssues(err))
	}
	if _, err := dec.Token(); err != io.EOF {
		return Request{}, apperr.Unprocessable(validationMessage, models.FieldErrors{"body": {"unexpected data after request object"}})
	}

	v := &validator{issues: models.FieldErrors{}}
	req := v.request(raw)
	if len(v.issues) > 0 {
		return Request{}, apperr.Unprocessable(validationMessage, v.issues)
	}
	return req, nil
}

func decodeIssues(err error) models.FieldErrors {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		field := typeErr.Field
		if field == "" {
			field = "body"
		}
		return models.FieldErrors{field: {fmt.Sprintf("expected %s, received %s", typeName(typeErr.Type), typeErr.Value)}}
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return models.FieldErrors{"body": {"malformed JSON: " + syntaxErr.Error()}}
	}
	return models.FieldErrors{"body": {strings.TrimPrefix(err.Error(), "json: ")}}
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "value"
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Float32, reflect.Float64, reflect.Int, reflect.Int64:
		return "number"
	case reflect.String:
		return "string"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice:
		return "array"
	case reflect.Struct, reflect.Map:
		if t == reflect.TypeOf(MetadataValue{}) {
			return "string, number or boolean"
		}
		return "object"
	}
	return t.String()
}

type validator struct {
	issues models.FieldErrors
}

func (v *validator) add(path, msg string) {
	v.issues[path] = append(v.issues[path], msg)
}

func (v *validator) str(path string, s *string, required bool) string {
	if s == nil {
		if required {
			v.add(path, "Required")
		}
		return ""
	}
	if required && *s == "" {
		v.add(path, "String must contain at least 1 character(s)")
	}
	return *s
}

func (v *validator) amount(path string, f *float64) float64 {
	if f == nil {
		v.add(path, "Required")
		return 0
	}
	if *f < 0 {
		v.add(path, "Number must be greater than or equal to 0")
	}
	return *f
}

func (v *validator) provider(path string, s *string) models.Provider {
	if s == nil {
		v.add(path, "Required")
		return ""
	}
	p := models.Provider(*s)
	for _, allowed := range Providers {
		if p == allowed {
			return p
		}
	}
	v.add(path, "Invalid enum value. Expected azure | aws | gcp")
	return p
}

func (v *validator) request(raw rawRequest) Request {
	var req Request
	if raw.ProviderResults == nil {
		v.add("providerResults", "Required")
	} else if len(*raw.ProviderResults) == 0 {
		v.add("providerResults", "Array must contain at least 1 element(s)")
	} else {
		for i, r := range *raw.ProviderResults {
			req.ProviderResults = append(req.ProviderResults, v.providerResult(fmt.Sprintf("providerResults.%d", i), r))
		}
	}
	if raw.OptimizationRecommendations != nil {
		req.OptimizationRecommendations = []ProviderOptimization{}
		for i, o := range *raw.OptimizationRecommendations {
			req.OptimizationRecommendations = append(req.OptimizationRecommendations, v.optimization(fmt.Sprintf("optimizationRecommendations.%d", i), o))
		}
	}
	return req
}

func (v *validator) providerResult(path string, raw rawProviderResult) ProviderCostResult {
	out := ProviderCostResult{
		Provider:       v.provider(path+".provider", raw.Provider),
		Region:         v.str(path+".region", raw.Region, true),
		PricingVersion: v.str(path+".pricingVersion", raw.PricingVersion, true),
		CalculatedAt:   v.str(path+".calculatedAt", raw.CalculatedAt, true),
		Details:        []CostDetailItem{},
	}

	if raw.Summary == nil {
		v.add(path+".summary", "Required")
	} else {
		s := raw.Summary
		out.Summary = CostSummary{
			MonthlyTotal: v.amount(path+".summary.monthlyTotal", s.MonthlyTotal),
			YearlyTotal:  v.amount(path+".summary.yearlyTotal", s.YearlyTotal),
			Currency:     v.str(path+".summary.currency", s.Currency, true),
		}
		if s.Currency != nil && *s.Currency != "" && *s.Currency != "INR" {
			v.add(path+".summary.currency", `Invalid literal value, expected "INR"`)
		}
	}

	if raw.Breakdown == nil {
		v.add(path+".breakdown", "Required")
	} else {
		b := raw.Breakdown
		out.Breakdown = CostBreakdown{
			Compute:       v.amount(path+".breakdown.compute", b.Compute),
			Storage:       v.amount(path+".breakdown.storage", b.Storage),
			Database:      v.amount(path+".breakdown.database", b.Database),
			Backup:        v.amount(path+".breakdown.backup", b.Backup),
			NetworkEgress: v.amount(path+".breakdown.networkEgress", b.NetworkEgress),
			Other:         v.amount(path+".breakdown.other", b.Other),
		}
	}

	if raw.Details == nil {
		v.add(path+".details", "Required")
	} else {
		for i, d := range *raw.Details {
			dp := fmt.Sprintf("%s.details.%d", path, i)
			item := CostDetailItem{
				ServiceType: v.str(dp+".serviceType", d.ServiceType, true),
				Name:        v.str(dp+".name", d.Name, true),
				SKU:         v.str(dp+".sku", d.SKU, false),
				Quantity:    v.amount(dp+".quantity", d.Quantity),
				MonthlyCost: v.amount(dp+".monthlyCost", d.MonthlyCost),
				Metadata:    d.Metadata,
			}
			if d.UnitPrice != nil {
				price := v.amount(dp+".unitPrice", d.UnitPrice)
				item.UnitPrice = &price
			}
			out.Details = append(out.Details, item)
		}
	}

	if raw.Optimization != nil {
		opt := v.optimization(path+".optimization", *raw.Optimization)
		out.Optimization = &opt
	}
	return out
}

func (v *validator) optimization(path string, raw rawProviderOptimization) ProviderOptimization {
	out := ProviderOptimization{
		Provider:        v.provider(path+".provider", raw.Provider),
		Recommendations: []OptimizationRecommendation{},
	}
	if raw.Recommendations == nil {
		v.add(path+".recommendations", "Required")
		return out
	}
	for i, r := range *raw.Recommendations {
		rp := fmt.Sprintf("%s.recommendations.%d", path, i)
		rec := OptimizationRecommendation{
			Message:                 v.str(rp+".message", r.Message, true),
			EstimatedMonthlySavings: v.amount(rp+".estimatedMonthlySavings", r.EstimatedMonthlySavings),
		}
		if r.Type == nil {
			v.add(rp+".type", "Required")
		} else {
			rec.Type = OptimizationType(*r.Type)
			if !rec.Type.valid() {
				v.add(rp+".type", "Invalid enum value. Expected RIGHT_SIZING | RESERVED_INSTANCE | STORAGE_OPTIMIZATION | NETWORK_OPTIMIZATION")
			}
		}
		out.Recommendations = append(out.Recommendations, rec)
	}
	return out
}
