package booking

// Roles carried by the verified identity claim that the external auth layer
// attaches to each request.
const (
	RoleCustomer = "RegisteredCustomer"
	RoleOperator = "FranchiseOperator"
)

// Identity is the claim produced by the authentication collaborator. This
// subsystem never verifies tokens itself.
type Identity struct {
	UserID string
	Role   string
}

func (id Identity) IsOperator() bool {
	return id.Role == RoleOperator
}

func (id Identity) IsCustomer() bool {
	return id.Role == RoleCustomer
}
