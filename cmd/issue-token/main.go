// issue-token mints credentials for an operator or an integration account.
//
// Usage:
//
//	API_SECRET=... go run ./cmd/issue-token --tenant-id acme --username ops@acme
//	REDIS_ADDRESS=... go run ./cmd/issue-token --tenant-id acme --username ops@acme --session
//
// Without --session it prints a bearer JWT. With --session it also stores an opaque session token
// in Redis for clients that send the "token" header.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/payroll_bridge/config"
	"github.com/mmdatafocus/payroll_bridge/utils"
)

func main() {
	tenantID := flag.String("tenant-id", "", "Tenant id (required unless --admin)")
	username := flag.String("username", "", "Required: username")
	name := flag.String("name", "", "Optional: display name")
	userID := flag.Int("user-id", 0, "Optional: numeric user id")
	admin := flag.Bool("admin", false, "Issue an admin credential (may act for any tenant)")
	session := flag.Bool("session", false, "Also store a Redis session token")
	ttl := flag.Duration("session-ttl", 24*time.Hour, "Session token lifetime")
	flag.Parse()

	if strings.TrimSpace(*username) == "" {
		fmt.Fprintln(os.Stderr, "--username is required")
		os.Exit(1)
	}
	if strings.TrimSpace(*tenantID) == "" && !*admin {
		fmt.Fprintln(os.Stderr, "--tenant-id is required for non-admin users")
		os.Exit(1)
	}
	role := "U"
	if *admin {
		role = utils.RoleAdmin
	}

	jwtToken, err := utils.JwtGenerate(*userID, *username, strings.TrimSpace(*tenantID), role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("bearer:", jwtToken)

	if !*session {
		return
	}
	config.ConnectRedisWithRetry()
	user := utils.SessionUser{
		ID:       *userID,
		Username: *username,
		Name:     *name,
		TenantId: strings.TrimSpace(*tenantID),
		Role:     role,
	}
	if err := config.SetRedisObject(utils.SessionUserKey(user.Username), &user, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "store session user: %v\n", err)
		os.Exit(1)
	}
	sessionToken := uuid.NewString()
	if err := config.SetRedisValue(utils.SessionTokenKey(sessionToken), user.Username, *ttl); err != nil {
		fmt.Fprintf(os.Stderr, "store session token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("session:", sessionToken)
}
