package alias

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/diwise/integration-ruuvi/domain"
	"gopkg.in/yaml.v3"
)

var ErrInvalidAlias = errors.New("invalid alias")

type Alias struct {
	Address string
	Name    string
}

// Parse reads an alias on the form ADDRESS=NAME
func Parse(s string) (Alias, error) {
	address, name, found := strings.Cut(s, "=")
	if !found {
		return Alias{}, fmt.Errorf("%w: %q", ErrInvalidAlias, s)
	}
	return Alias{Address: address, Name: name}, nil
}

// LoadFile reads aliases from a yaml mapping of addresses to names
func LoadFile(path string) ([]Alias, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read alias file: %s", err.Error())
	}

	m := map[string]string{}
	if err = yaml.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal alias file %s: %w", path, err)
	}

	aliases := make([]Alias, 0, len(m))
	for address, name := range m {
		aliases = append(aliases, Alias{Address: address, Name: name})
	}

	return aliases, nil
}

// Table maps normalized device addresses to display names. It is never
// modified after NewTable returns and may be shared between goroutines.
type Table struct {
	keepColons bool
	names      map[string]string
}

func NewTable(keepColons bool, aliases ...Alias) (Table, error) {
	t := Table{
		keepColons: keepColons,
		names:      make(map[string]string, len(aliases)),
	}

	for _, a := range aliases {
		address, err := domain.ParseAddress(a.Address)
		if err != nil {
			return Table{}, fmt.Errorf("%w: %s", ErrInvalidAlias, err.Error())
		}
		t.names[address.Normalize(keepColons)] = a.Name
	}

	return t, nil
}

func (t Table) Resolve(address domain.Address) string {
	key := address.Normalize(t.keepColons)
	if name, ok := t.names[key]; ok {
		return name
	}
	return key
}

func (t Table) Len() int {
	return len(t.names)
}
