package model

// PolicyParameters are the vehicle dynamics the simulator applies for a
// driving policy.
type PolicyParameters struct {
	Name                  string  `json:"name"`
	MaxSpeed              float64 `json:"max_speed"`
	Acceleration          float64 `json:"acceleration"`
	BrakePower            float64 `json:"brake_power"`
	SteeringSpeed         float64 `json:"steering_speed"`
	ConsumptionMultiplier float64 `json:"consumption_multiplier"`
}

// FallbackPolicyParameters is served when a policy is unknown or the store is down.
func FallbackPolicyParameters() PolicyParameters {
	return PolicyParameters{
		Name:                  PolicyComfort,
		MaxSpeed:              40,
		Acceleration:          4,
		BrakePower:            10,
		SteeringSpeed:         40,
		ConsumptionMultiplier: 1,
	}
}
