package domain

import "errors"

var (
	ErrRepositoryNotFound = errors.New("repository not found")
	ErrSlugTaken          = errors.New("repository slug already taken")
	ErrNotOwner           = errors.New("principal does not own repository")
)
