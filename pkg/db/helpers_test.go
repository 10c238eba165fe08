package db

import "github.com/smallbiznis/notifier/internal/config"

func dbConfig(typ string) config.DBConfig {
	return config.DBConfig{
		Type:       typ,
		Host:       "localhost",
		Port:       "5432",
		Name:       "notifications",
		User:       "postgres",
		SQLitePath: ":memory:",
	}
}
