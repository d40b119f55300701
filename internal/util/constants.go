package util

const DateFormat = "2006-01-02"

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
)

const (
	SortAsc  = "asc"
	SortDesc = "desc"
)
