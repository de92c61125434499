package domain

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
)

// Member represents a user's participation in a session.
// No transport or lifecycle logic here.
type Member struct {
	User User
	Role Role
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(user User, role Role) Member {
	return Member{User: user, Role: role}
}

func (m Member) IsTeacher() bool { return m.Role == RoleTeacher }

// MemberDTO is the wire view of a member.
type MemberDTO struct {
	ID        UserID `json:"userId"`
	Name      string `json:"name"`
	IsTeacher bool   `json:"isTeacher"`
}

func (m Member) DTO() MemberDTO {
	return MemberDTO{ID: m.User.ID, Name: m.User.Username, IsTeacher: m.IsTeacher()}
}
