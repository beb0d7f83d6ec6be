package store

import "errors"

// Domain errors for configuration store operations.
var (
	// Agent errors
	ErrAgentNotFound      = errors.New("agent not found")
	ErrDuplicateAgent     = errors.New("agent already exists")
	ErrAgentDisabled      = errors.New("agent account is disabled")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Queue errors
	ErrQueueNotFound  = errors.New("queue not found")
	ErrDuplicateQueue = errors.New("queue already exists")

	// Client errors
	ErrClientNotFound  = errors.New("client not found")
	ErrDuplicateClient = errors.New("client already exists")

	// Skill errors
	ErrSkillNotFound  = errors.New("skill not found")
	ErrDuplicateSkill = errors.New("skill already exists")

	// Release option errors
	ErrReleaseOptionNotFound  = errors.New("release option not found")
	ErrDuplicateReleaseOption = errors.New("release option already exists")
)
