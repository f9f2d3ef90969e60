// Command bcrypt-hash prints a password hash for the admin.password_hash
// field of a seed file.
package main

import (
	"fmt"
	"os"

	"reelvault/internal/logging"
	"reelvault/internal/utils"
)

func main() {
	if len(os.Args) != 2 {
		logging.Fatalf("usage: %s <password>", os.Args[0])
	}

	pw := os.Args[1]
	if err := utils.ValidatePassword(pw); err != nil {
		logging.Fatalf("invalid password: %v", err)
	}

	hash, err := utils.HashPassword(pw)
	if err != nil {
		logging.Fatalf("failed to hash password: %v", err)
	}

	fmt.Println(hash)
}
