package nn

import (
	"fmt"
	"sort"
	"strings"

	"github.com/born-ml/n2s/internal/tensor"
)

// PrefixStateDict copies every entry of src into dst under "prefix.name".
func PrefixStateDict(dst map[string]*tensor.RawTensor, prefix string, src map[string]*tensor.RawTensor) {
	for name, raw := range src {
		dst[prefix+"."+name] = raw
	}
}

// SubStateDict returns the entries of sd that start with "prefix.", with the prefix removed.
func SubStateDict(sd map[string]*tensor.RawTensor, prefix string) map[string]*tensor.RawTensor {
	p := prefix + "."
	out := make(map[string]*tensor.RawTensor)
	for key, raw := range sd {
		if name, ok := strings.CutPrefix(key, p); ok {
			out[name] = raw
		}
	}
	return out
}

// LoadParameters loads every named parameter from sd.
// A missing key is an error; extra keys are ignored.
func LoadParameters[B tensor.Backend](sd map[string]*tensor.RawTensor, params map[string]*Parameter[B]) error {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		raw, ok := sd[name]
		if !ok {
			return fmt.Errorf("missing %s in state dict", name)
		}
		if err := params[name].Load(raw); err != nil {
			return err
		}
	}
	return nil
}
