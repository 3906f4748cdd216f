// Package reliability carries the static reliability profile and the failure-class
// taxonomy every outbound event is tagged with when its acknowledgment fails.
package reliability

// FailureClass tags why an outbound event's acknowledgment came back failed.
type FailureClass string

// The nine failure classes the Reliability Profile recognizes.
const (
	FailureBrokerUnavailable       FailureClass = "broker_unavailable"
	FailureUnroutableMessage      FailureClass = "unroutable_message"
	FailurePublishConfirmTimeout  FailureClass = "publish_confirm_timeout"
	FailureConsumerProcessing     FailureClass = "consumer_processing_failure"
	FailureRetryExhausted         FailureClass = "retry_exhausted"
	FailureAuthConfiguration      FailureClass = "auth_configuration_error"
	FailureContractDrift          FailureClass = "contract_drift"
	FailureReconciliationDrift    FailureClass = "reconciliation_drift"
	FailureUnknown                FailureClass = "unknown"
)

// Profile is the static declaration of SLOs, RTO/RPO for the critical event class.
type Profile struct {
	InterAppDeliveryTarget float64 // e.g. 0.9999
	EventAckTarget         float64 // e.g. 0.999
	P95PublishLatencySLO   string  // e.g. "5s"
	RTO                    string  // e.g. "15m"
	RPO                    string  // e.g. "5m"
}

// Default is the reliability profile this subsystem declares for its critical event class.
var Default = Profile{
	InterAppDeliveryTarget: 0.9999,
	EventAckTarget:         0.999,
	P95PublishLatencySLO:   "5s",
	RTO:                    "15m",
	RPO:                    "5m",
}
