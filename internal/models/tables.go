package models

// Tables of the practice database that the data API exposes.
const (
	TablePatients        = "patients"
	TableSessions        = "sessions"
	TableAppointments    = "appointments"
	TableClinicalRecords = "clinical_records"
	TableHomeTasks       = "home_tasks"
	TableNotes           = "notes"
	TableStudyMaterials  = "study_materials"
)

var knownTables = map[string]bool{
	TablePatients:        true,
	TableSessions:        true,
	TableAppointments:    true,
	TableClinicalRecords: true,
	TableHomeTasks:       true,
	TableNotes:           true,
	TableStudyMaterials:  true,
}

// IsKnownTable reports whether name is one of the practice tables
func IsKnownTable(name string) bool {
	return knownTables[name]
}

// KnownTables returns the practice tables in a stable order
func KnownTables() []string {
	return []string{
		TablePatients,
		TableSessions,
		TableAppointments,
		TableClinicalRecords,
		TableHomeTasks,
		TableNotes,
		TableStudyMaterials,
	}
}
