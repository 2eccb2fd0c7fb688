package request

// TriggerBackup is the optional body for a manual backup trigger. The
// export scope comes from the session role, not the request.
type TriggerBackup struct {
	Reason string `json:"reason" validate:"omitempty,max=200"`
}
