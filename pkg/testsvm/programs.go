package testsvm

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/fortiblox/testsvm/pkg/addressbook"
	"github.com/fortiblox/testsvm/pkg/svm"
	"github.com/fortiblox/testsvm/pkg/types"
)

// AddProgram installs a native program under id and labels it. A label
// that cannot be registered leaves the ledger untouched.
func (t *TestSVM) AddProgram(label string, id types.Pubkey, program svm.Program) error {
	if err := t.book.Check(id, label, addressbook.ProgramRole{}); err != nil {
		return err
	}
	if err := t.ledger.AddProgram(id, program); err != nil {
		return err
	}
	return t.book.AddProgram(id, label)
}

// AddProgramFromFile deploys a program binary from path and labels it.
func (t *TestSVM) AddProgramFromFile(label string, id types.Pubkey, path string) error {
	if err := t.book.Check(id, label, addressbook.ProgramRole{}); err != nil {
		return err
	}
	if err := t.ledger.AddProgramFromFile(id, path); err != nil {
		return err
	}
	return t.book.AddProgram(id, label)
}

// AddProgramFixture deploys fixtures/programs/<name>.so, or its .so.zst
// form, labelled name. The fixtures directory comes from the configuration
// or is the nearest "fixtures" directory above the working directory.
func (t *TestSVM) AddProgramFixture(name string, id types.Pubkey) error {
	path, err := t.fixturePath(name)
	if err != nil {
		return err
	}
	t.log.Debug("loading program fixture", zap.String("name", name), zap.String("path", path))
	return t.AddProgramFromFile(name, id, path)
}

func (t *TestSVM) fixturePath(name string) (string, error) {
	dir := t.cfg.FixturesDir
	if dir == "" {
		found, err := findFixturesDir()
		if err != nil {
			return "", err
		}
		dir = found
	}
	base := filepath.Join(dir, "programs", name+".so")
	for _, p := range []string{base, base + ".zst"} {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrFixtureNotFound, base)
}

func findFixturesDir() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for dir := wd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, "fixtures")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		if filepath.Dir(dir) == dir {
			return "", fmt.Errorf("%w: no fixtures directory above %s", ErrFixtureNotFound, wd)
		}
	}
}
