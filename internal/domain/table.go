package domain

type Table struct {
	Number   int
	Capacity int
	Enabled  bool
	Occupied bool
}
