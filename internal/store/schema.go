package store

// columnSpec is a single declared column: its name and a dialect-neutral
// kind the backend maps to a concrete SQL type. The schema-drift check in
// Bind compares the live database's column name set for a table against
// this list — it does not attempt to reconcile types, only presence, which
// is exactly what catches "missing/renamed column" per spec §4.1.
type columnSpec struct {
	name string
	kind string // one of: "int", "serial", "text", "blob", "decimal", "bool"
}

type tableSpec struct {
	name    string
	columns []columnSpec
	pk      []string
}

// schema is the compiled-in table set both backends must match. Every
// entity in spec §3/§6.1 has a row here.
var schema = []tableSpec{
	{
		name: "chain",
		columns: []columnSpec{
			{"id", "int"},
		},
		pk: []string{"id"},
	},
	{
		name: "block",
		columns: []columnSpec{
			{"chain", "int"}, {"number", "int"}, {"hash", "text"}, {"timestamp", "int"},
		},
		pk: []string{"chain", "number"},
	},
	{
		name: "address",
		columns: []columnSpec{
			{"chain", "int"}, {"address", "text"}, {"notes", "text"},
			{"deployer", "text"}, {"deploy_block", "int"},
			{"symbol", "text"}, {"name", "text"}, {"decimals", "int"}, {"bucket", "text"},
		},
		pk: []string{"chain", "address"},
	},
	{
		name: "price",
		columns: []columnSpec{
			{"chain", "int"}, {"block", "int"}, {"token", "text"}, {"price", "decimal"},
		},
		pk: []string{"chain", "block", "token"},
	},
	{
		name: "log_topic",
		columns: []columnSpec{
			{"dbid", "serial"}, {"topic", "text"},
		},
		pk: []string{"dbid"},
	},
	{
		name: "hashes",
		columns: []columnSpec{
			{"dbid", "serial"}, {"hash", "text"},
		},
		pk: []string{"dbid"},
	},
	{
		name: "log",
		columns: []columnSpec{
			{"chain", "int"}, {"block", "int"}, {"tx_hash", "text"}, {"log_index", "int"},
			{"address", "text"}, {"topic0", "text"}, {"topic1", "text"}, {"topic2", "text"}, {"topic3", "text"},
			{"raw", "blob"},
		},
		pk: []string{"chain", "block", "tx_hash", "log_index"},
	},
	{
		name: "log_cache_info",
		columns: []columnSpec{
			{"chain", "int"}, {"address", "text"}, {"topics", "text"},
			{"cached_from", "int"}, {"cached_thru", "int"},
		},
		pk: []string{"chain", "address", "topics"},
	},
	{
		name: "trace",
		columns: []columnSpec{
			{"id", "serial"}, {"chain", "int"}, {"block", "int"}, {"hash", "text"},
			{"from_address", "text"}, {"to_address", "text"}, {"raw", "blob"},
		},
		pk: []string{"id"},
	},
	{
		name: "trace_cache_info",
		columns: []columnSpec{
			{"chain", "int"}, {"to_addresses", "text"}, {"from_addresses", "text"},
			{"cached_from", "int"}, {"cached_thru", "int"},
		},
		pk: []string{"chain", "to_addresses", "from_addresses"},
	},
	{
		name: "block_at_timestamp",
		columns: []columnSpec{
			{"chain", "int"}, {"timestamp", "int"}, {"block", "int"},
		},
		pk: []string{"chain", "timestamp"},
	},
}
