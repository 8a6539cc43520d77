package testsvm_test

import (
	"bytes"
	"fmt"

	"github.com/fortiblox/testsvm/pkg/config"
	"github.com/fortiblox/testsvm/pkg/testsvm"
	"github.com/fortiblox/testsvm/pkg/types"
)

func Example() {
	cfg, err := config.Default()
	if err != nil {
		panic(err)
	}
	cfg.Color = config.ColorNever

	s, err := testsvm.New(testsvm.WithConfig(cfg), testsvm.WithOutput(&bytes.Buffer{}))
	if err != nil {
		panic(err)
	}
	defer s.Close()

	alice, err := s.NewWallet("alice")
	if err != nil {
		panic(err)
	}
	bob := types.KeypairFromName("bob").Pubkey()
	if err := s.AddressBook().AddWallet(bob, "bob"); err != nil {
		panic(err)
	}

	r, err := s.Transfer(alice, bob, types.LamportsPerSOL)
	if err != nil {
		panic(err)
	}
	balance, _ := s.Balance(bob)
	fmt.Println(r.IsSuccess(), balance, s.AddressBook().GetLabel(bob))
	// Output: true 1000000000 bob
}
