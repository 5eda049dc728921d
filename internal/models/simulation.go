package models

import (
	"strings"
	"time"
)

type SimulationScenario struct {
	ScenarioID string   `json:"scenarioId"`
	Provider   Provider `json:"provider"`
	Region     string   `json:"region"`
	SKU        string   `json:"sku"`
}

// Key identifies the scenario's pricing unit independent of its generated id.
func (s SimulationScenario) Key() string {
	return string(s.Provider) + ":" + s.Region + ":" + s.SKU
}

// ProviderSkuOffer is one catalog entry reported by the pricing oracle.
type ProviderSkuOffer struct {
	Provider               Provider `json:"provider"`
	Region                 string   `json:"region"`
	SKU                    string   `json:"sku"`
	BillingModel           string   `json:"billingModel"`
	GPUFamily              string   `json:"gpuFamily"`
	GPUCountPerVM          int      `json:"gpuCountPerVm"`
	VCPUCountPerVM         int      `json:"vcpuCountPerVm"`
	RAMGBPerVM             float64  `json:"ramGbPerVm"`
	MachinePricePerHourUSD float64  `json:"machinePricePerHourUsd"`
	MaxInstances           int      `json:"maxInstances"`
}

type MachineDetails struct {
	Provider              Provider `json:"provider"`
	Region                string   `json:"region"`
	MachineType           string   `json:"machineType"`
	NumberOfGPUs          int      `json:"numberOfGpus"`
	IncludedRAMGB         float64  `json:"includedRamGb"`
	IncludedVCPU          int      `json:"includedVcpu"`
	MachineHourlyPriceUSD float64  `json:"machineHourlyPriceUsd"`
	InstanceCount         int      `json:"instanceCount"`
}

type OutputSummary struct {
	MachineDetails          MachineDetails `json:"machineDetails"`
	ComputeCostExplanation  string         `json:"computeCostExplanation"`
	DataTransferExplanation string         `json:"dataTransferExplanation"`
	BandwidthExplanation    string         `json:"bandwidthExplanation"`
	TotalCostSummary        string         `json:"totalCostSummary"`
}

// ProviderSimulationResult is one priced candidate produced by the pricing oracle.
type ProviderSimulationResult struct {
	PlanID                 string        `json:"planId"`
	BatchID                string        `json:"batchId"`
	ScenarioID             string        `json:"scenarioId"`
	Provider               Provider      `json:"provider"`
	Region                 string        `json:"region"`
	SKU                    string        `json:"sku"`
	InstancesRequired      int           `json:"instancesRequired"`
	GPUCountTotal          int           `json:"gpuCountTotal"`
	VCPUCountPerVM         int           `json:"vcpuCountPerVm"`
	RAMGBPerVM             float64       `json:"ramGbPerVm"`
	MachinePricePerHourUSD float64       `json:"machinePricePerHourUsd"`
	ComputeCost            float64       `json:"computeCost"`
	EgressCost             float64       `json:"egressCost"`
	BandwidthCost          float64       `json:"bandwidthCost"`
	TotalCost              float64       `json:"totalCost"`
	DistanceKm             float64       `json:"distanceKm"`
	OutputSummary          OutputSummary `json:"outputSummary"`
	Assumptions            []string      `json:"assumptions"`
}

// TransferCost is the combined data movement cost used by ranking.
func (r ProviderSimulationResult) TransferCost() float64 {
	return r.EgressCost + r.BandwidthCost
}

type AvailabilityScore struct {
	Provider       Provider  `json:"provider"`
	Region         string    `json:"region"`
	Score          float64   `json:"score"`
	Samples        int       `json:"samples"`
	LastObservedAt time.Time `json:"lastObservedAt"`
}

// Matches reports whether the score applies to provider/region, ignoring case on both.
func (a AvailabilityScore) Matches(provider Provider, region string) bool {
	return strings.EqualFold(string(a.Provider), string(provider)) && strings.EqualFold(a.Region, region)
}

type SimulationBatch struct {
	BatchID             string     `json:"batchId"`
	PlanID              string     `json:"planId"`
	ExpectedJobs        int        `json:"expectedJobs"`
	CompletionPublished bool       `json:"completionPublished"`
	CreatedAt           time.Time  `json:"createdAt"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
}

type OutcomeStatus string

const (
	OutcomeResult OutcomeStatus = "result"
	OutcomeFailed OutcomeStatus = "failed"
)

// SimulationOutcome is the coordinator's record of one scenario's result or failure.
type SimulationOutcome struct {
	BatchID    string
	PlanID     string
	Scenario   SimulationScenario
	Status     OutcomeStatus
	Result     *ProviderSimulationResult
	Error      string
	ObservedAt time.Time
}

func (o SimulationOutcome) Available() bool {
	return o.Status == OutcomeResult
}
