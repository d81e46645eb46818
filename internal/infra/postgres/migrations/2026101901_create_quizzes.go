package migrations

func init() {
	Migrations.MustRegister(up("2026101901_create_quizzes.sql"), dropTables("quizzes"))
}
