package world

type Team struct {
	Name  string
	Money int64
}
