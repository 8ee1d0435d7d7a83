package vault

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// KV - key value secrets engine mounted at `mount`, version 1 or 2
type KV struct {
	client *Client
	mount  string
	v2     bool
}

// KVv1 - key value version 1 engine, an empty mount uses the configured default
func (v *Client) KVv1(mount string) *KV {
	return &KV{client: v, mount: mountOr(mount, v.config.Mounts.KeyValueV1)}
}

// KVv2 - key value version 2 engine, an empty mount uses the configured default
func (v *Client) KVv2(mount string) *KV {
	return &KV{client: v, mount: mountOr(mount, v.config.Mounts.KeyValueV2), v2: true}
}

// Mount - mount point of the engine
func (kv *KV) Mount() string {
	return kv.mount
}

func (kv *KV) dataPath(path string) string {
	path = strings.Trim(path, "/")
	if kv.v2 {
		return kv.mount + "/data/" + path
	}
	return kv.mount + "/" + path
}

func (kv *KV) metadataPath(path string) string {
	path = strings.Trim(path, "/")
	if kv.v2 {
		return kv.mount + "/metadata/" + path
	}
	return kv.mount + "/" + path
}

// Write - writes the vault data to the given path, this will **COMPLETELY** replace all values in the path.
// Fields set to nil are not stored, on either version. For version 2 the returned data is the version metadata of the write
func (kv *KV) Write(ctx context.Context, path string, d Data) (data Data, err error) {
	var body interface{} = d
	if kv.v2 {
		body = Data{"data": d.compact()}
	}

	secret, err := Send[Data](ctx, kv.client, &Request{Method: http.MethodPut, Path: kv.dataPath(path), Body: body})
	if nil != err {
		return nil, fmt.Errorf("write: %w", err)
	}

	return secret.Data, nil
}

// WriteKey - writes the given string value to the specific key under the given path, other keys are kept
func (kv *KV) WriteKey(ctx context.Context, path, field, value string) (data Data, err error) {

	d, err := kv.Read(ctx, path)
	if nil != err {
		var keyErr *KeyError
		if !errors.As(err, &keyErr) {
			return nil, fmt.Errorf("writekey: %w", err)
		}
		d = NewData() // first key under this path
	}

	d.SetString(field, value)

	return kv.Write(ctx, path, d)
}

// Read - reads all the fields under the given path
func (kv *KV) Read(ctx context.Context, path string) (data Data, err error) {

	secret, err := Send[Data](ctx, kv.client, &Request{Method: http.MethodGet, Path: kv.dataPath(path)})
	if nil != err {
		if IsNotFound(err) {
			return nil, fmt.Errorf("read: %w", NewKeyError(kv.mount, path))
		}
		return nil, fmt.Errorf("read: %w", err)
	}

	data = secret.Data
	if kv.v2 {
		data = secret.Data.GetData("data")
	}

	if nil == data {
		// a version 2 secret whose latest version was deleted has no data
		return nil, fmt.Errorf("read: %w", NewKeyError(kv.mount, path))
	}

	return data, nil
}

// ReadKey - reads the specific key under the given path and returns a string value
func (kv *KV) ReadKey(ctx context.Context, path, field string) (value string, err error) {

	d, err := kv.Read(ctx, path)
	if nil != err {
		return "", fmt.Errorf("readkey: %w", err)
	}

	if !d.Exist(field) {
		return "", fmt.Errorf("readkey: %w", NewFieldError(path, field))
	}

	return d.GetString(field), nil
}

// Delete - delete the given key, deleting a path that does not exist is not an error.
// For version 2 only the latest version is deleted
func (kv *KV) Delete(ctx context.Context, path string) (err error) {

	_, err = Send[Data](ctx, kv.client, &Request{Method: http.MethodDelete, Path: kv.dataPath(path)})
	if nil != err && !IsNotFound(err) {
		return fmt.Errorf("delete: %w", err)
	}

	return nil
}

// List - list keys under a given path, folders end with "/"
func (kv *KV) List(ctx context.Context, path string) (keys []string, err error) {

	secret, err := Send[Data](ctx, kv.client, &Request{
		Method: http.MethodGet,
		Path:   kv.metadataPath(path),
		Params: url.Values{"list": []string{"true"}},
	})
	if nil != err {
		if IsNotFound(err) {
			return nil, NewListError(kv.mount, path)
		}
		return nil, fmt.Errorf("list: %w", err)
	}

	keys = secret.Data.GetStrings("keys")
	if len(keys) == 0 {
		return nil, NewListError(kv.mount, path)
	}

	return
}
