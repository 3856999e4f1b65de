package migrate

import "fmt"

// System fields are stripped on the way in and re-synthesized here on the way
// out, so authored schemas never carry them but emitted collections are
// always complete.

func primaryKeyField() []kv {
	return []kv{
		{"autogeneratePattern", "[a-z0-9]{15}"},
		{"hidden", false},
		{"id", "text3208210256"},
		{"max", 15},
		{"min", 15},
		{"name", "id"},
		{"pattern", "^[a-z0-9]+$"},
		{"presentable", false},
		{"primaryKey", true},
		{"required", true},
		{"system", true},
		{"type", "text"},
	}
}

func authSystemFields() [][]kv {
	return [][]kv{
		{
			{"cost", 0},
			{"hidden", true},
			{"id", "password901924565"},
			{"max", 0},
			{"min", 8},
			{"name", "password"},
			{"pattern", ""},
			{"presentable", false},
			{"required", true},
			{"system", true},
			{"type", "password"},
		},
		{
			{"autogeneratePattern", "[a-zA-Z0-9]{50}"},
			{"hidden", true},
			{"id", "text2504183744"},
			{"max", 60},
			{"min", 30},
			{"name", "tokenKey"},
			{"pattern", ""},
			{"presentable", false},
			{"primaryKey", false},
			{"required", true},
			{"system", true},
			{"type", "text"},
		},
		{
			{"exceptDomains", nil},
			{"hidden", false},
			{"id", "email3885137012"},
			{"name", "email"},
			{"onlyDomains", nil},
			{"presentable", false},
			{"required", true},
			{"system", true},
			{"type", "email"},
		},
		{
			{"hidden", false},
			{"id", "bool1547992806"},
			{"name", "emailVisibility"},
			{"presentable", false},
			{"required", false},
			{"system", true},
			{"type", "bool"},
		},
		{
			{"hidden", false},
			{"id", "bool256245529"},
			{"name", "verified"},
			{"presentable", false},
			{"required", false},
			{"system", true},
			{"type", "bool"},
		},
	}
}

// authSystemIndexes returns the unique indexes every auth collection carries
// on tokenKey and email.
func authSystemIndexes(collection string) []string {
	return []string{
		fmt.Sprintf("CREATE UNIQUE INDEX `idx_tokenKey_%s` ON `%s` (`tokenKey`)", collection, collection),
		fmt.Sprintf("CREATE UNIQUE INDEX `idx_email_%s` ON `%s` (`email`) WHERE `email` != ''", collection, collection),
	}
}
