package migrations

func init() {
	Migrations.MustRegister(up("2026101902_create_accounts.sql"), dropTables("accounts"))
}
