package store

import "github.com/example/ride-negotiation/internal/models"

// Seed loads the demo roster. Carlos and Maria are ready to drive; Luis is
// parked behind admin verification so the approval flow has something to do.
func Seed(s *Store) {
	s.AddPassenger(&models.Passenger{User: models.User{
		ID:        "pass1",
		Name:      "Ana",
		Role:      models.RolePassenger,
		AvatarURL: "https://i.pravatar.cc/150?u=pass1",
	}})
	s.AddDriver(&models.Driver{
		User: models.User{
			ID:        "driver1",
			Name:      "Carlos",
			Role:      models.RoleDriver,
			AvatarURL: "https://i.pravatar.cc/150?u=driver1",
		},
		Rating:       4.9,
		Vehicle:      "Toyota Prius",
		Plate:        "ABC-123",
		Online:       true,
		Verification: models.VerificationApproved,
		ETAMinutes:   3,
	})
	s.AddDriver(&models.Driver{
		User: models.User{
			ID:        "driver2",
			Name:      "Maria",
			Role:      models.RoleDriver,
			AvatarURL: "https://i.pravatar.cc/150?u=driver2",
		},
		Rating:       4.7,
		Vehicle:      "Honda Civic",
		Plate:        "XYZ-789",
		Online:       true,
		Verification: models.VerificationApproved,
		ETAMinutes:   5,
	})
	s.AddDriver(&models.Driver{
		User: models.User{
			ID:        "driver3",
			Name:      "Luis",
			Role:      models.RoleDriver,
			AvatarURL: "https://i.pravatar.cc/150?u=driver3",
		},
		Rating:       5.0,
		Vehicle:      "Nissan Versa",
		Plate:        "QRS-456",
		Online:       false,
		Verification: models.VerificationPending,
		ETAMinutes:   7,
	})
}
