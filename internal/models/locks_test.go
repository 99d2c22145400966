package models

import "testing"

func TestLocksDefaultPermissive(t *testing.T) {
	// Старые payload'ы без locks — всё разрешено, ничего не блокируем.
	u := &UserRecord{Name: "Иванов", RollNumber: "A1", Role: Student}
	if !u.CanUpdateProfile() || !u.CanUploadPhoto() || !u.CanRegisterFace() {
		t.Fatal("без структуры locks все действия должны быть разрешены")
	}
}

func TestLocksIndependent(t *testing.T) {
	u := &UserRecord{
		RollNumber: "A1",
		Locks:      &Locks{PhotoUpload: true},
	}
	if !u.CanUpdateProfile() {
		t.Fatal("блокировка фото не должна запрещать правку профиля")
	}
	if u.CanUploadPhoto() {
		t.Fatal("фото заблокировано")
	}
	if !u.CanRegisterFace() {
		t.Fatal("регистрация лица не заблокирована")
	}
}

func TestRoleIsStaff(t *testing.T) {
	if Student.IsStaff() {
		t.Fatal("ученик не персонал")
	}
	if !Staff.IsStaff() || !Owner.IsStaff() {
		t.Fatal("staff и owner — персонал")
	}
}
