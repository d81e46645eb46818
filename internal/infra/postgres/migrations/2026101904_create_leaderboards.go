package migrations

func init() {
	Migrations.MustRegister(up("2026101904_create_leaderboards.sql"), dropTables("live_leaderboard", "global_stats"))
}
