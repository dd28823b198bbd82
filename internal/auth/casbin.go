package auth

import (
	"log"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"gorm.io/gorm"
)

const allMethods = "(GET)|(POST)|(PUT)|(DELETE)"

// defaultUserPolicies grants the regular `user` role access to its own
// strategies, datasets and backtests. keyMatch2 resolves the :id segments.
var defaultUserPolicies = [][]string{
	{"user", "/api/auth/me", "(GET)"},
	{"user", "/api/auth/logout", "(POST)"},
	{"user", "/api/strategies", "(GET)|(POST)"},
	{"user", "/api/strategies/:id", "(GET)|(PUT)|(DELETE)"},
	{"user", "/api/datasets", "(GET)"},
	{"user", "/api/datasets/upload", "(POST)"},
	{"user", "/api/datasets/:id", "(GET)|(DELETE)"},
	{"user", "/api/backtests", "(GET)|(POST)"},
	{"user", "/api/backtests/:id", "(GET)|(DELETE)"},
	{"user", "/api/backtests/:id/status", "(GET)"},
	{"user", "/api/engine/health", "(GET)"},
}

// InitCasbin defines the RBAC model and initializes the enforcer with GORM adapter
func InitCasbin(db *gorm.DB) (*casbin.Enforcer, error) {
	// 1. Initialize GORM adapter (creates casbin_rule table)
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}

	// 2. Define RBAC Model in string format
	// r = request (who, what, how)
	// p = policy (who, what, how)
	// g = grouping (role hierarchy)
	// m = matcher (how to match request to policy)
	text := `
		[request_definition]
		r = sub, obj, act

		[policy_definition]
		p = sub, obj, act

		[role_definition]
		g = _, _

		[policy_effect]
		e = some(where (p.eft == allow))

		[matchers]
		m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && regexMatch(r.act, p.act)
	`
	// keyMatch2 supports URL parameters like /strategies/:id

	m, err := model.NewModelFromString(text)
	if err != nil {
		return nil, err
	}

	// 3. Create Enforcer
	enforcer, err := casbin.NewEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}

	// 4. Load policy from database
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}

	// 5. Initialize default policies if empty
	policies, _ := enforcer.GetPolicy()
	if len(policies) == 0 {
		log.Println("Casbin: No policies found, initializing default policies...")

		if _, err := enforcer.AddPolicy("admin", "/api/*", allMethods); err != nil {
			log.Printf("Failed to add admin policy: %v", err)
		}
		for _, p := range defaultUserPolicies {
			if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
				log.Printf("Failed to add policy %v: %v", p, err)
			}
		}
		if err := enforcer.SavePolicy(); err != nil {
			log.Printf("Failed to save default policies: %v", err)
		} else {
			log.Println("Casbin: Default policies initialized.")
		}
	}

	log.Println("Casbin initialized successfully")
	return enforcer, nil
}
