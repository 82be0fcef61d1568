package storage

func init() {
	RegisterAdapter(isSQLDB, newSQLAdapter)
	RegisterAdapter(isMongoDB, newMongoAdapter)
	RegisterAdapter(isChromemDB, newChromemAdapter)

	// drivers
	RegisterDriver("sqlite", newSQLDriver("sqlite"))
	RegisterDriver("postgres", newSQLDriver("postgres"))
	RegisterDriver("mongodb", newMongoDriver)
	RegisterDriver("chromem", newChromemDriver)
}
