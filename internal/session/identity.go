// Package session holds the signed-in identity of the running client and
// fans out every change to registered observers.
//
// A Store is an explicit object owned by the application root. It starts
// from the identity cached in local storage (if any), which is provisional
// until the backend reports the real auth state.
package session

// Identity is the locally cached view of the signed-in user. An empty
// string means the field is unknown. The zero Identity means "signed out".
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	PhotoURL    string `json:"photoURL"`
	Bio         string `json:"bio"`
	Career      string `json:"career"`
	FullyLoaded bool   `json:"fullyLoaded"`
}

// IsZero reports whether i is the signed-out sentinel.
func (i Identity) IsZero() bool {
	return i == Identity{}
}

// State is the hydration state of the session.
type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateAuthenticating  State = "authenticating"
	StatePartiallyLoaded State = "partially_loaded"
	StateFullyLoaded     State = "fully_loaded"
	StateError           State = "error"
)

// Snapshot is what observers receive. It is a plain value, so every
// delivery is an independent copy.
type Snapshot struct {
	Identity

	State State
	// Err describes the last hydration failure when State is StateError.
	Err string
	// Rehydrated is true while the identity still comes from local storage
	// and no update has been applied yet.
	Rehydrated bool
	// Version increases with every applied update.
	Version uint64
}

// Patch is a shallow partial update. Nil fields are left untouched.
type Patch struct {
	ID          *string
	Email       *string
	DisplayName *string
	PhotoURL    *string
	Bio         *string
	Career      *string
	FullyLoaded *bool
	State       *State
	Err         *string
}

// String returns a pointer to s, for building a Patch.
func String(s string) *string { return &s }

// Bool returns a pointer to b, for building a Patch.
func Bool(b bool) *bool { return &b }

// StateOf returns a pointer to st, for building a Patch.
func StateOf(st State) *State { return &st }

func (p Patch) apply(s *Snapshot) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&s.ID, p.ID)
	set(&s.Email, p.Email)
	set(&s.DisplayName, p.DisplayName)
	set(&s.PhotoURL, p.PhotoURL)
	set(&s.Bio, p.Bio)
	set(&s.Career, p.Career)
	set(&s.Err, p.Err)
	if p.FullyLoaded != nil {
		s.FullyLoaded = *p.FullyLoaded
	}
	if p.State != nil {
		s.State = *p.State
	}
}

// signedOut is the patch that turns any snapshot into the sentinel.
func signedOut() Patch {
	empty := ""
	return Patch{
		ID:          &empty,
		Email:       &empty,
		DisplayName: &empty,
		PhotoURL:    &empty,
		Bio:         &empty,
		Career:      &empty,
		FullyLoaded: Bool(false),
		State:       StateOf(StateUnauthenticated),
		Err:         &empty,
	}
}
