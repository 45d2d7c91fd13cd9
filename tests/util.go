package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/trezcool/pueriangeli/core/classroom"
	"github.com/trezcool/pueriangeli/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	firstName, lastName, email, pwd string,
	role user.Role,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateClass(t *testing.T, repo classroom.Repository, name, level, teacherID string, capacity int) classroom.Class {
	t.Helper()

	now := time.Now().UTC()
	cls, err := repo.CreateClass(context.Background(), classroom.Class{
		Name:         name,
		Level:        level,
		TeacherID:    teacherID,
		Capacity:     capacity,
		AcademicYear: "2026-2027",
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		t.Fatalf("createClass() failed: %v", err)
	}
	return cls
}

func CreateStudent(t *testing.T, repo classroom.Repository, firstName, lastName, matricule, classID, parentID string) classroom.Student {
	t.Helper()

	now := time.Now().UTC()
	s, err := repo.CreateStudent(context.Background(), classroom.Student{
		FirstName: firstName,
		LastName:  lastName,
		Matricule: matricule,
		BirthDate: time.Date(2016, time.March, 4, 0, 0, 0, 0, time.UTC),
		ClassID:   classID,
		ParentID:  parentID,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("createStudent() failed: %v", err)
	}
	return s
}
