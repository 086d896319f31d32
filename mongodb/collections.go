package mongodb

const (
	UsersCollection    = "partner_users"    // Local accounts linked to Partner identities
	SessionsCollection = "partner_sessions" // Sessions minted by the local minter
)
