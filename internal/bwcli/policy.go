package bwcli

import "go.uber.org/zap"

const (
	diagnosticFailureMessageConstant = "Diagnostic vault operation failed"
	toleratedFailureMessageConstant  = "Vault operation attempt failed; trying next candidate"
	logFieldOperationConstant        = "operation"
	logFieldPolicyConstant           = "policy"
)

// FailurePolicy declares how a failed operation affects the run.
type FailurePolicy int

const (
	// FailurePolicyFatal propagates the failure to the caller.
	FailurePolicyFatal FailurePolicy = iota
	// FailurePolicyDiagnostic logs and discards the failure.
	FailurePolicyDiagnostic
	// FailurePolicyExhaustionTolerant discards individual failures of a bounded candidate search.
	FailurePolicyExhaustionTolerant
)

// String returns the policy label used in logs.
func (policy FailurePolicy) String() string {
	switch policy {
	case FailurePolicyDiagnostic:
		return "diagnostic"
	case FailurePolicyExhaustionTolerant:
		return "exhaustion-tolerant"
	default:
		return "fatal"
	}
}

var operationPolicies = map[OperationName]FailurePolicy{
	OperationVersion:         FailurePolicyFatal,
	OperationConfigureServer: FailurePolicyFatal,
	OperationLogin:           FailurePolicyFatal,
	OperationUnlock:          FailurePolicyFatal,
	OperationStatus:          FailurePolicyDiagnostic,
	OperationExport:          FailurePolicyFatal,
	OperationImportFormats:   FailurePolicyDiagnostic,
	OperationImport:          FailurePolicyExhaustionTolerant,
	OperationListItems:       FailurePolicyFatal,
	OperationGetItem:         FailurePolicyFatal,
	OperationEncode:          FailurePolicyFatal,
	OperationCreateItem:      FailurePolicyFatal,
	OperationLogout:          FailurePolicyDiagnostic,
}

// PolicyFor returns the declared failure policy of the operation. Undeclared operations are fatal.
func PolicyFor(operation OperationName) FailurePolicy {
	policy, declared := operationPolicies[operation]
	if !declared {
		return FailurePolicyFatal
	}
	return policy
}

// ApplyFailurePolicy is the only place vault operation failures are discarded.
// It returns nil for diagnostic and exhaustion-tolerant operations and the failure otherwise.
func ApplyFailurePolicy(logger *zap.Logger, operation OperationName, failure error) error {
	if failure == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	policy := PolicyFor(operation)
	switch policy {
	case FailurePolicyDiagnostic:
		logger.Debug(diagnosticFailureMessageConstant, zap.String(logFieldOperationConstant, string(operation)), zap.Stringer(logFieldPolicyConstant, policy), zap.Error(failure))
		return nil
	case FailurePolicyExhaustionTolerant:
		logger.Debug(toleratedFailureMessageConstant, zap.String(logFieldOperationConstant, string(operation)), zap.Stringer(logFieldPolicyConstant, policy), zap.Error(failure))
		return nil
	default:
		return failure
	}
}
