package vault

import (
	"fmt"
	"strconv"
	"strings"
)

// Role AuthRegistry 中的角色编号
type Role uint8

const (
	RoleOperator       Role = 1
	RoleStrategist     Role = 2
	RoleHarvester      Role = 3
	RoleBridgeAdmin    Role = 4
	RoleBridgeOperator Role = 5
)

var roleNames = map[Role]string{
	RoleOperator:       "operator",
	RoleStrategist:     "strategist",
	RoleHarvester:      "harvester",
	RoleBridgeAdmin:    "bridge-admin",
	RoleBridgeOperator: "bridge-operator",
}

// Roles 全部角色，按编号排列
func Roles() []Role {
	return []Role{RoleOperator, RoleStrategist, RoleHarvester, RoleBridgeAdmin, RoleBridgeOperator}
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return "role(" + strconv.Itoa(int(r)) + ")"
}

// Valid 是否为已知角色
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// ParseRole 接受角色名（operator / bridge_admin / BridgeAdmin）或编号
func ParseRole(s string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("_", "-", " ", "-").Replace(key)
	for role, name := range roleNames {
		if key == name || key == strings.ReplaceAll(name, "-", "") {
			return role, nil
		}
	}
	if n, err := strconv.ParseUint(key, 10, 8); err == nil && Role(n).Valid() {
		return Role(n), nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}
