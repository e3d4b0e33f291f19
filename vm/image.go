package vm

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ImageVersion is bumped whenever the instruction set or the table layout
// changes incompatibly.
const ImageVersion = 1

// ImageMagic identifies a serialized program.
const ImageMagic = "SYSY"

var ErrBadImage = errors.New("not a sysy bytecode image")

type image struct {
	Magic   string   `cbor:"1,keyasint"`
	Version int      `cbor:"2,keyasint"`
	Program *Program `cbor:"3,keyasint"`
}

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// MarshalImage serializes a program to deterministic CBOR bytes.
func MarshalImage(p *Program) ([]byte, error) {
	return cborEncMode.Marshal(image{Magic: ImageMagic, Version: ImageVersion, Program: p})
}

// UnmarshalImage decodes and verifies a program produced by MarshalImage.
func UnmarshalImage(data []byte) (*Program, error) {
	var img image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadImage, err)
	}
	if img.Magic != ImageMagic {
		return nil, fmt.Errorf("%w: magic %q", ErrBadImage, img.Magic)
	}
	if img.Version != ImageVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrBadImage, img.Version, ImageVersion)
	}
	if img.Program == nil {
		return nil, fmt.Errorf("%w: missing program", ErrBadImage)
	}
	if err := img.Program.Verify(); err != nil {
		return nil, err
	}
	return img.Program, nil
}

// WriteImageFile writes p to path.
func WriteImageFile(path string, p *Program) error {
	data, err := MarshalImage(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadImageFile reads a program written by WriteImageFile.
func ReadImageFile(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return UnmarshalImage(data)
}
