package domain

import "errors"

var (
	ErrSiteAlreadyExists = errors.New("domain: site already registered at this key")
	ErrSiteHasChildren   = errors.New("domain: site has sub-sites, unregister with force")
	ErrSiteNotFound      = errors.New("domain: no site matches")
	ErrResponseAnswered  = errors.New("domain: response already answered")
)
