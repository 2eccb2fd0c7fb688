package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Collection names for the clinic database. The doctor backup scope is a
// fixed subset of these; the admin scope is whatever exists at call time.
const (
	CollectionAppointments    = "appointments"
	CollectionLabWorks        = "labworks"
	CollectionPatients        = "patients"
	CollectionBillings        = "billings"
	CollectionUsers           = "users"
	CollectionSessions        = "sessions"
	CollectionBackupHistories = "backuphistories"
)

// BackupRecord is the persisted metadata row for a completed manual backup.
// It is written once, after the archive file is finalized, and never
// mutated.
type BackupRecord struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Filename    string             `bson:"filename" json:"filename"`
	Path        string             `bson:"path" json:"path"`
	Role        Role               `bson:"role" json:"role"`
	SizeBytes   int64              `bson:"size" json:"size_bytes"`
	TriggeredBy string             `bson:"triggeredBy" json:"triggered_by"`
	BackupDate  time.Time          `bson:"backupDate" json:"backup_date"`
	CreatedAt   time.Time          `bson:"createdAt" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updatedAt" json:"updated_at"`
}
