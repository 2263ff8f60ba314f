package identity

import (
	"github.com/careplan/intake/internal/platform/apperror"
)

// Outcome is the verdict of conflict resolution.
type Outcome int

const (
	AcceptNew Outcome = iota
	AcceptExisting
	Reject
)

func (o Outcome) String() string {
	switch o {
	case AcceptNew:
		return "accept_new"
	case AcceptExisting:
		return "accept_existing"
	case Reject:
		return "reject"
	default:
		return "unknown"
	}
}

// Mode selects how strictly an already registered patient is treated.
// Validation accepts a consistent existing record; creation refuses it.
type Mode int

const (
	ModeValidate Mode = iota
	ModeCreate
)

// Conflict reasons, used as metric labels and log fields.
const (
	ReasonProviderNPIMismatch  = "provider_npi_mismatch"
	ReasonProviderNameMismatch = "provider_name_mismatch"
	ReasonProviderExists       = "provider_exists"
	ReasonPatientDemographics  = "patient_demographics_mismatch"
	ReasonPatientMRNMismatch   = "patient_mrn_mismatch"
	ReasonPatientNameMismatch  = "patient_name_mismatch"
	ReasonPatientExists        = "patient_exists"
)

const (
	MsgProviderNPIMismatch  = "Provider is already registered with different credentials. Please verify the correct NPI for this provider."
	MsgProviderNameMismatch = "This NPI is registered to a different provider. Please use matching provider credentials."
	MsgProviderExists       = "Provider with this NPI already exists. Please resubmit the order."

	MsgPatientDemographics         = "Patient is already registered with different DOB/sex. Please verify patient credentials."
	MsgPatientDemographicsValidate = "Patient is already registered with different credentials. Please verify DOB and sex."
	MsgPatientMRNMismatch          = "Patient is already registered with different credentials. Please verify the MRN for this patient."
	MsgPatientMRNMismatchValidate  = "Patient is already registered with different credentials. Please verify MRN."
	MsgPatientNameMismatch         = "This MRN is registered to a different patient. Please verify patient credentials."
	MsgPatientExists               = "Patient with this MRN already exists. Cannot create duplicate patient record."
)

// Decision is the resolver's verdict for one identity. Existing is set for
// AcceptExisting and Conflict for Reject.
type Decision[T any] struct {
	Outcome  Outcome
	Existing *T
	Conflict *apperror.ConflictError
}

func reject[T any](reason, msg string) Decision[T] {
	return Decision[T]{Outcome: Reject, Conflict: apperror.Conflict(reason, msg)}
}

// ResolveProvider applies the provider rules in order; the first that fires
// wins. A consistent existing provider is reused.
func ResolveProvider(npi, name string, byNPI, byName *Provider) Decision[Provider] {
	if byName != nil && byName.NPI != npi {
		return reject[Provider](ReasonProviderNPIMismatch, MsgProviderNPIMismatch)
	}
	if byNPI != nil && !equalFold(byNPI.Name, name) {
		return reject[Provider](ReasonProviderNameMismatch, MsgProviderNameMismatch)
	}
	if byNPI != nil {
		return Decision[Provider]{Outcome: AcceptExisting, Existing: byNPI}
	}
	if byName != nil {
		return Decision[Provider]{Outcome: AcceptExisting, Existing: byName}
	}
	return Decision[Provider]{Outcome: AcceptNew}
}

// ResolvePatient applies the patient rules to candidate, which needs only its
// identity fields set. In ModeCreate an existing MRN is always rejected.
func ResolvePatient(candidate *Patient, byName, byMRN *Patient, mode Mode) Decision[Patient] {
	if byName != nil {
		if !sameDate(byName.DOB, candidate.DOB) || !equalFold(byName.Sex, candidate.Sex) {
			if mode == ModeValidate {
				return reject[Patient](ReasonPatientDemographics, MsgPatientDemographicsValidate)
			}
			return reject[Patient](ReasonPatientDemographics, MsgPatientDemographics)
		}
		if byName.MRN != candidate.MRN {
			if mode == ModeValidate {
				return reject[Patient](ReasonPatientMRNMismatch, MsgPatientMRNMismatchValidate)
			}
			return reject[Patient](ReasonPatientMRNMismatch, MsgPatientMRNMismatch)
		}
	}

	if byMRN != nil && (!equalFold(byMRN.FirstName, candidate.FirstName) || !equalFold(byMRN.LastName, candidate.LastName)) {
		return reject[Patient](ReasonPatientNameMismatch, MsgPatientNameMismatch)
	}

	if byMRN != nil {
		if mode == ModeCreate {
			return reject[Patient](ReasonPatientExists, MsgPatientExists)
		}
		return Decision[Patient]{Outcome: AcceptExisting, Existing: byMRN}
	}
	return Decision[Patient]{Outcome: AcceptNew}
}
