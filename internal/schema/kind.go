// Package schema defines the entity kinds accepted by the registry, their
// required field sets, and the normalization of raw tabular rows into
// upload-ready records.
package schema

// Kind identifies an entity kind. It determines the required field set,
// the registry endpoint, and the validated type field (if any).
type Kind string

const (
	KindPatient     Kind = "patient"
	KindAcquisition Kind = "acquisition"
	KindFeature     Kind = "feature"
)

// Kinds returns all entity kinds in processing order.
func Kinds() []Kind {
	return []Kind{KindPatient, KindAcquisition, KindFeature}
}

// Valid reports whether k is a known entity kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPatient, KindAcquisition, KindFeature:
		return true
	}
	return false
}

// Endpoint returns the registry endpoint path for the kind.
func (k Kind) Endpoint() string {
	switch k {
	case KindPatient:
		return "patients"
	case KindAcquisition:
		return "imaging_acquisitions"
	case KindFeature:
		return "features"
	}
	return ""
}

// Basename returns the file basename used for the kind's durable logs.
func (k Kind) Basename() string {
	switch k {
	case KindPatient:
		return "participants"
	case KindAcquisition:
		return "acquisitions"
	case KindFeature:
		return "features"
	}
	return ""
}

// ItemName returns the template fragment name for the kind's request items.
func (k Kind) ItemName() string {
	return "Add " + string(k)
}

// requiredFields maps each kind to its fixed, ordered field list. The order
// doubles as the emission order when a record is serialized.
var requiredFields = map[Kind][]string{
	KindPatient: {
		"disease_id",
		"center_id",
		"data_id",
		"remote_id",
		"dataset",
		"disease_notes",
		"education",
		"sex",
		"clinical",
		"behavioral",
	},
	KindAcquisition: {
		"remote_id",
		"acquisition_type",
		"general_comments",
		"head_coil",
		"tesla_field",
		"manufacturer",
		"machine",
		"resolution_acquis",
		"resolution_recon",
		"resolution_x",
		"resolution_y",
		"resolution_z",
		"time_repetition",
		"echo_time",
		"flip_angle",
		"bval",
		"bval_bin",
		"bvecs_num",
		"vol_num",
		"acquisition_plan",
		"injec_info",
	},
	KindFeature: {
		"remote_id",
		"feature_type",
	},
}

// RequiredFields returns the kind's field whitelist in emission order.
// The returned slice must not be mutated.
func (k Kind) RequiredFields() []string {
	return requiredFields[k]
}

// TypeField returns the name of the kind's type-discriminating field, or ""
// when the kind has no type constraint.
func (k Kind) TypeField() string {
	switch k {
	case KindAcquisition:
		return "acquisition_type"
	case KindFeature:
		return "feature_type"
	}
	return ""
}

var validAcquisitionTypes = map[string]struct{}{
	"fMRI_rest": {},
	"perf":      {},
	"T2w":       {},
	"UTE":       {},
	"DIXON":     {},
	"hdeeg":     {},
	"pet":       {},
	"T1w":       {},
	"T1w_pre":   {},
	"lesion":    {},
	"Flair":     {},
	"T1w_wca":   {},
	"dMRI":      {},
	"fMRI_task": {},
	"TOF":       {},
	"SWI":       {},
}

var validFeatureTypes = map[string]struct{}{
	"dwi":    {},
	"anat":   {},
	"lesion": {},
	"pet":    {},
	"eeg":    {},
	"func":   {},
}

// validTypes returns the whitelist for the kind's type field, or nil when the
// kind has no type constraint.
func (k Kind) validTypes() map[string]struct{} {
	switch k {
	case KindAcquisition:
		return validAcquisitionTypes
	case KindFeature:
		return validFeatureTypes
	}
	return nil
}
