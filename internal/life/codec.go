package life

import (
	"encoding/json"
	"fmt"
	"os"
)

func (g Grid) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.Rows())
}

func (g *Grid) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*g = decoded
	return nil
}

// Decode parses the JSON array-of-arrays form and validates it.
func Decode(data []byte) (Grid, error) {
	var rows [][]int
	if err := json.Unmarshal(data, &rows); err != nil {
		return Grid{}, fmt.Errorf("decode grid: %w", err)
	}
	return FromRows(rows)
}

func Encode(g Grid) ([]byte, error) {
	if g.size == 0 {
		return nil, ErrEmptyGrid
	}
	return json.Marshal(g.Rows())
}

func LoadFile(path string) (Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Grid{}, err
	}
	g, err := Decode(data)
	if err != nil {
		return Grid{}, fmt.Errorf("load grid %s: %w", path, err)
	}
	return g, nil
}

func SaveFile(path string, g Grid) error {
	data, err := Encode(g)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}
