package compiler

import (
	"fmt"
	"os"
)

// Compile scans and translates a SysY compilation unit.
func Compile(source string) (*Result, error) {
	tokens, err := Tokenize(source)
	if err != nil {
		return nil, err
	}
	return Translate(tokens)
}

// CompileFile reads and compiles the file at path.
func CompileFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	res, err := Compile(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return res, nil
}
