package models

type Role string

const (
	Student Role = "student"
	Staff   Role = "staff"
	Owner   Role = "owner"
)

// IsStaff — владелец и персонал отмечают посещаемость, ученики только смотрят свою.
func (r Role) IsStaff() bool {
	return r == Staff || r == Owner
}

// Locks — блокировки self-service действий, выставляет только бэкенд.
// true = действие заблокировано.
type Locks struct {
	ProfileUpdate    bool `json:"profileUpdate"`
	PhotoUpload      bool `json:"photoUpload"`
	FaceRegistration bool `json:"faceRegistration"`
}

// UserRecord — запись пользователя, как её отдаёт бэкенд.
// Locks == nil — старый payload без блокировок.
type UserRecord struct {
	Name          string `json:"name"`
	RollNumber    string `json:"rollNumber"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Role          Role   `json:"role"`
	EnrolledClass string `json:"enrolledClass,omitempty"`
	Locks         *Locks `json:"locks,omitempty"`
}

// CanUpdateProfile и ниже — единая точка трактовки блокировок.
// Отсутствие структуры Locks всегда читается как "разрешено".
func (u *UserRecord) CanUpdateProfile() bool {
	return u.Locks == nil || !u.Locks.ProfileUpdate
}

func (u *UserRecord) CanUploadPhoto() bool {
	return u.Locks == nil || !u.Locks.PhotoUpload
}

func (u *UserRecord) CanRegisterFace() bool {
	return u.Locks == nil || !u.Locks.FaceRegistration
}
