package migrations

func init() {
	Migrations.MustRegister(up("2026101903_create_attempts.sql"), dropTables("attempts"))
}
