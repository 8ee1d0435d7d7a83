package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Entity - input for creating or updating an entity, unset fields are left out of the request
type Entity struct {
	Name     string            `json:"name,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Policies []string          `json:"policies,omitempty"`
	Disabled *bool             `json:"disabled,omitempty"`
}

// EntityInfo - an entity as read back
type EntityInfo struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Metadata          map[string]string `json:"metadata"`
	Policies          []string          `json:"policies"`
	Disabled          bool              `json:"disabled"`
	Aliases           []EntityAliasInfo `json:"aliases"`
	CreationTime      time.Time         `json:"creation_time"`
	LastUpdateTime    time.Time         `json:"last_update_time"`
	MergedEntityIDs   []string          `json:"merged_entity_ids"`
	NamespaceID       string            `json:"namespace_id"`
	DirectGroupIDs    []string          `json:"direct_group_ids"`
	InheritedGroupIDs []string          `json:"inherited_group_ids"`
}

// EntityAlias - input for creating an alias linking an auth mount identity to an entity
type EntityAlias struct {
	Name          string            `json:"name"`
	CanonicalID   string            `json:"canonical_id"`
	MountAccessor string            `json:"mount_accessor"`
	ID            string            `json:"id,omitempty"`
	CustomMeta    map[string]string `json:"custom_metadata,omitempty"`
}

// EntityAliasUpdate - input for updating an alias, unset fields are left out of the request
type EntityAliasUpdate struct {
	Name          string            `json:"name,omitempty"`
	CanonicalID   string            `json:"canonical_id,omitempty"`
	MountAccessor string            `json:"mount_accessor,omitempty"`
	CustomMeta    map[string]string `json:"custom_metadata,omitempty"`
}

// EntityAliasInfo - an alias as read back
type EntityAliasInfo struct {
	ID            string            `json:"id"`
	Name          string            `json:"name"`
	CanonicalID   string            `json:"canonical_id"`
	MountAccessor string            `json:"mount_accessor"`
	MountType     string            `json:"mount_type"`
	CustomMeta    map[string]string `json:"custom_metadata"`
}

// EntityRef - ids returned by entity and alias writes
type EntityRef struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	CanonicalID string   `json:"canonical_id"`
	Aliases     []string `json:"aliases"`
}

// Identity - the identity secrets engine
type Identity struct {
	client *Client
	mount  string
}

// Identity - identity engine at `mount`, an empty mount uses the configured default
func (v *Client) Identity(mount string) *Identity {
	return &Identity{client: v, mount: mountOr(mount, v.config.Mounts.Identity)}
}

// CreateOrUpdateEntityByName - creates the entity `entity.Name` or updates it, an update answers with no content
func (i *Identity) CreateOrUpdateEntityByName(ctx context.Context, entity Entity) (ref *EntityRef, err error) {
	if len(entity.Name) == 0 {
		return nil, errors.New("createorupdateentitybyname: name is required")
	}

	secret, err := Send[EntityRef](ctx, i.client, &Request{
		Method: http.MethodPost,
		Path:   i.mount + "/entity/name/" + entity.Name,
		Body:   entity,
	})
	if nil != err {
		return nil, fmt.Errorf("createorupdateentitybyname: %w", err)
	}

	return &secret.Data, nil
}

// UpdateEntityByID - updates an existing entity, a non empty `entity.Name` renames it
func (i *Identity) UpdateEntityByID(ctx context.Context, id string, entity Entity) (err error) {
	if len(id) == 0 {
		return errors.New("updateentitybyid: id is required")
	}

	_, err = Send[Data](ctx, i.client, &Request{Method: http.MethodPost, Path: i.mount + "/entity/id/" + id, Body: entity})
	if nil != err {
		return fmt.Errorf("updateentitybyid: %w", err)
	}

	return
}

// ReadEntityByName - reads an entity by name
func (i *Identity) ReadEntityByName(ctx context.Context, name string) (entity *EntityInfo, err error) {
	return i.readEntity(ctx, "name", name)
}

// ReadEntityByID - reads an entity by id
func (i *Identity) ReadEntityByID(ctx context.Context, id string) (entity *EntityInfo, err error) {
	return i.readEntity(ctx, "id", id)
}

func (i *Identity) readEntity(ctx context.Context, by, key string) (entity *EntityInfo, err error) {

	secret, err := Send[EntityInfo](ctx, i.client, &Request{Method: http.MethodGet, Path: i.mount + "/entity/" + by + "/" + key})
	if nil != err {
		return nil, fmt.Errorf("readentity: %w", err)
	}

	return &secret.Data, nil
}

// ListEntitiesByName - entity names, empty when there are none
func (i *Identity) ListEntitiesByName(ctx context.Context) (names []string, err error) {

	secret, err := Send[Data](ctx, i.client, &Request{
		Method: http.MethodGet,
		Path:   i.mount + "/entity/name",
		Params: url.Values{"list": []string{"true"}},
	})
	if nil != err {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listentitiesbyname: %w", err)
	}

	return secret.Data.GetStrings("keys"), nil
}

// CreateEntityAlias - links an identity of an auth mount to an entity
func (i *Identity) CreateEntityAlias(ctx context.Context, alias EntityAlias) (ref *EntityRef, err error) {

	secret, err := Send[EntityRef](ctx, i.client, &Request{Method: http.MethodPost, Path: i.mount + "/entity-alias", Body: alias})
	if nil != err {
		return nil, fmt.Errorf("createentityalias: %w", err)
	}

	return &secret.Data, nil
}

// ReadEntityAliasByID - reads an alias by id
func (i *Identity) ReadEntityAliasByID(ctx context.Context, id string) (alias *EntityAliasInfo, err error) {

	secret, err := Send[EntityAliasInfo](ctx, i.client, &Request{Method: http.MethodGet, Path: i.mount + "/entity-alias/id/" + id})
	if nil != err {
		return nil, fmt.Errorf("readentityaliasbyid: %w", err)
	}

	return &secret.Data, nil
}

// UpdateEntityAliasByID - updates an alias, empty fields keep their value
func (i *Identity) UpdateEntityAliasByID(ctx context.Context, id string, alias EntityAliasUpdate) (ref *EntityRef, err error) {
	if len(id) == 0 {
		return nil, errors.New("updateentityaliasbyid: id is required")
	}

	secret, err := Send[EntityRef](ctx, i.client, &Request{Method: http.MethodPost, Path: i.mount + "/entity-alias/id/" + id, Body: alias})
	if nil != err {
		return nil, fmt.Errorf("updateentityaliasbyid: %w", err)
	}

	return &secret.Data, nil
}

// ListEntityAliasesByID - alias ids, empty when there are none
func (i *Identity) ListEntityAliasesByID(ctx context.Context) (ids []string, err error) {

	secret, err := Send[Data](ctx, i.client, &Request{
		Method: http.MethodGet,
		Path:   i.mount + "/entity-alias/id",
		Params: url.Values{"list": []string{"true"}},
	})
	if nil != err {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listentityaliasesbyid: %w", err)
	}

	return secret.Data.GetStrings("keys"), nil
}

// DeleteEntityAliasByID - removes an alias
func (i *Identity) DeleteEntityAliasByID(ctx context.Context, id string) (err error) {

	_, err = Send[Data](ctx, i.client, &Request{Method: http.MethodDelete, Path: i.mount + "/entity-alias/id/" + id})
	if nil != err {
		return fmt.Errorf("deleteentityaliasbyid: %w", err)
	}

	return
}
