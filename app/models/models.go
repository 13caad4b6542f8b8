package models

// All lists every persisted model for AutoMigrate
func All() []interface{} {
	return []interface{}{
		&Team{},
		&Project{},
		&Integration{},
		&DownstreamIntegration{},
		&Rule{},
		&Job{},
		&ProcessedEvent{},
		&AuditLog{},
	}
}
